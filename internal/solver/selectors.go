package solver

const (
	CheckboxFrame  = "(//iframe[contains(@title,'checkbox')])[1]"
	ChallengeFrame = "(//iframe[contains(@title,'content')])[1]"

	// inside the challenge frame
	PromptText      = "(//h2[@class='prompt-text'])[1]"
	SubmitButton    = "(//div[@class='button-submit button'])[1]"
	RefreshButton   = "(//div[@class='refresh button'])[1]"
	TaskImage       = "//div[@class='task-image']"
	ChallengeAnswer = "//div[@class='challenge-answer']"
	AnswerText      = "div.text-content"
)

// titles of the submit button
const (
	labelSubmit = "Submit Answers"
	labelNext   = "Next Challenge"
)
