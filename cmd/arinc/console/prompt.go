package console

import (
	"strings"

	"github.com/chzyer/readline"
)

const (
	Yes = "y"
	No  = "n"
)

var yesNoConstraints = []string{Yes, No}

// YesOrNo asks on rl and defaults to yes.
func YesOrNo(rl *readline.Instance, question string) (string, error) {
	return Prompt(rl, question, yesNoConstraints...)
}

// Prompt asks question on rl. With constraints the answer must be one of
// them, the first one being the default.
func Prompt(rl *readline.Instance, question string, constraints ...string) (string, error) {
	prev := rl.Config.Prompt
	defer rl.SetPrompt(prev)
	if len(constraints) == 0 {
		rl.SetPrompt(question + " ")
		return rl.Readline()
	}
	var prompt strings.Builder
	prompt.WriteString(question)
	prompt.WriteString(" [")
	prompt.WriteString(strings.ToUpper(constraints[0]))
	for i := 1; i < len(constraints); i++ {
		prompt.WriteString("/")
		prompt.WriteString(constraints[i])
	}
	prompt.WriteString("]: ")
	rl.SetPrompt(prompt.String())
	response, err := rl.Readline()
	if err != nil {
		return "", err
	}
	normalized := strings.ToLower(strings.TrimSpace(response))
	for _, c := range constraints {
		if normalized == c {
			return normalized, nil
		}
	}
	// no input or no constraint matched
	return constraints[0], nil
}
