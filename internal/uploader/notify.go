package uploader

import "log"

// Notifier receives user-facing notifications for terminal upload outcomes.
// The marketplace UI surfaces these as toasts; the default writes to the
// process log.
type Notifier interface {
	Success(kind Kind, message string)
	Error(kind Kind, message string)
}

type logNotifier struct{}

func (logNotifier) Success(kind Kind, message string) {
	log.Printf("upload: %s", message)
}

func (logNotifier) Error(kind Kind, message string) {
	log.Printf("upload error: %s", message)
}
