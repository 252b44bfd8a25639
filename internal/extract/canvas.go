package extract

import (
	"fmt"

	"github.com/jonashiltl/captcha-solver/internal/browser"
)

// Redraws the first canvas into an offscreen one no larger than 500x536 and
// returns it as a jpeg without the data url prefix.
const canvasSnapshot = `
async () => {
	const source = document.querySelector("canvas");
	if (!source) return null;

	const [width, height] = [source.width, source.height];
	const scale = Math.min(500 / width, 536 / height);
	const [outWidth, outHeight] = [width * scale, height * scale];

	const out = document.createElement("canvas");
	Object.assign(out, { width: outWidth, height: outHeight });
	out.getContext("2d").drawImage(source, 0, 0, width, height, 0, 0, outWidth, outHeight);

	return out
		.toDataURL("image/jpeg", 0.4)
		.replace(/^data:image\/(png|jpeg);base64,/, "");
}`

// Canvas snapshots the challenge canvas of frame.
func Canvas(frame browser.Frame) (string, error) {
	result, err := frame.Evaluate(canvasSnapshot)
	if err != nil {
		return "", fmt.Errorf("snapshotting canvas: %w", err)
	}
	img, ok := result.(string)
	if !ok || img == "" {
		return "", ErrNoImage
	}
	return img, nil
}
