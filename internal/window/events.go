package window

import (
	"errors"
	"sync"

	"github.com/bryanchriswhite/taskdock/internal/logger"
)

type cancelOnce struct {
	once sync.Once
	fn   func()
}

func (c *cancelOnce) Cancel() {
	c.once.Do(c.fn)
}

// JoinEvents merges event sources. Registration on primary must succeed;
// extra sources are best effort and skipped for kinds they cannot observe.
func JoinEvents(primary Events, extra ...Events) Events {
	return joinedEvents(append([]Events{primary}, extra...))
}

type joinedEvents []Events

func (j joinedEvents) Observe(kind EventKind, fn func(EventKind)) (Registration, error) {
	regs := make([]Registration, 0, len(j))
	for i, src := range j {
		reg, err := src.Observe(kind, fn)
		if err != nil {
			if i == 0 {
				return nil, err
			}
			ev := logger.WithComponent("window").Warn()
			if errors.Is(err, ErrUnsupported) {
				ev = logger.WithComponent("window").Debug()
			}
			ev.Err(err).Stringer("kind", kind).Msg("Extra event source skipped")
			continue
		}
		regs = append(regs, reg)
	}

	return &cancelOnce{fn: func() {
		for _, reg := range regs {
			reg.Cancel()
		}
	}}, nil
}
