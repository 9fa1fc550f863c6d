package pipeline

import (
	"errors"
	"fmt"
	"sync"

	"github.com/relloyd/openetl/components"
	"github.com/sirupsen/logrus"
)

// newPanicHandler returns a func for components to defer. It recovers a panic and
// sends the first one as an error on errChan, which must have capacity for one value.
func newPanicHandler(errChan chan<- error) components.PanicHandlerFunc {
	once := sync.Once{}
	return func() {
		if r := recover(); r != nil {
			err := panicToError(r)
			once.Do(func() { errChan <- err })
		}
	}
}

func panicToError(r interface{}) error {
	switch x := r.(type) {
	case *logrus.Entry:
		return errors.New(x.Message)
	case error:
		return x
	case string:
		return errors.New(x)
	}
	return fmt.Errorf("%v", r)
}
