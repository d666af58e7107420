package document

import (
	"github.com/joeycumines/logiface"
)

// consolePrinter bridges the page console to the logger.
type consolePrinter struct {
	logger *logiface.Logger[logiface.Event]
}

func (p consolePrinter) Log(msg string) {
	p.logger.Info().Str(`console`, `log`).Log(msg)
}

func (p consolePrinter) Warn(msg string) {
	p.logger.Warning().Str(`console`, `warn`).Log(msg)
}

func (p consolePrinter) Error(msg string) {
	p.logger.Err().Str(`console`, `error`).Log(msg)
}
