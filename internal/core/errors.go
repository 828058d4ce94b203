package core

import (
	"github.com/vovakirdan/roomwire/internal/errs"
)

// noticeFor converts a handler error into the single notice the actor receives.
// Unclassified errors are reported as store failures so internals never leak.
func noticeFor(err error) *Event {
	e, ok := errs.As(err)
	if !ok {
		e = errs.StoreFailure(err)
	}
	return &Event{
		Kind:   EventNotice,
		Notice: &Notice{Code: e.Code, Text: e.Message, Type: NoticeError},
	}
}

func infoNotice(code, text string) *Event {
	return &Event{
		Kind:   EventNotice,
		Notice: &Notice{Code: code, Text: text, Type: NoticeInfo},
	}
}
