package homework

import "fmt"

var verdicts = map[string]string{
	StatusReviewing: "Работа взята на проверку ревьюером.",
	StatusApproved:  "Работа проверена: ревьюеру всё понравилось. Ура!",
	StatusRejected:  "Работа проверена: у ревьюера есть замечания.",
}

// Verdict returns the display text for a status.
func Verdict(status string) (string, bool) {
	v, ok := verdicts[status]
	return v, ok
}

// FormatVerdict renders the chat message for a homework status change.
func FormatVerdict(hw Homework) (string, error) {
	if hw.decodeErr != nil {
		return "", fmt.Errorf("%w: homework record: %v", ErrMalformedJSON, hw.decodeErr)
	}
	if !hw.HasName {
		return "", &MissingKeyError{Key: "homework_name"}
	}
	if !hw.HasStatus {
		return "", &MissingKeyError{Key: "status"}
	}
	verdict, ok := Verdict(hw.Status)
	if !ok {
		return "", &UnknownStatusError{Status: hw.Status}
	}
	return fmt.Sprintf("Изменился статус проверки работы \"%s\". %s", hw.Name, verdict), nil
}
