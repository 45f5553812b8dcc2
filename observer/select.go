package observer

import (
	"fmt"
	"log"
	"time"

	"outline_assistant/hostview"
)

// Strategy names an observation strategy.
type Strategy string

const (
	StrategyAuto     Strategy = "auto"
	StrategyMutation Strategy = "mutation"
	StrategyPoll     Strategy = "poll"
)

// Options tune the watcher built by Select.
type Options struct {
	Strategy     Strategy
	Debounce     time.Duration
	PollInterval time.Duration
	// Bootstrap bounds the wait for the text container; zero means DefaultBootstrapTimeout.
	Bootstrap time.Duration
	Logger    *log.Logger
	Verbose   bool
}

// Select builds the watcher for the view. With StrategyAuto it checks for the
// mutation-observable text container and falls back to polling when the
// container is missing.
func Select(adapter *hostview.Adapter, opts Options) (Watcher, Strategy, error) {
	strategy := opts.Strategy
	if strategy == "" || strategy == StrategyAuto {
		strategy = StrategyPoll
		if adapter.HasTextRoot() {
			strategy = StrategyMutation
		}
	}

	switch strategy {
	case StrategyMutation:
		return &MutationWatcher{Adapter: adapter, Debounce: opts.Debounce, BootstrapTimeout: opts.Bootstrap, Logger: opts.Logger, Verbose: opts.Verbose}, strategy, nil
	case StrategyPoll:
		return &PollWatcher{Source: ViewSource{Adapter: adapter}, Interval: opts.PollInterval, BootstrapTimeout: opts.Bootstrap, Logger: opts.Logger, Verbose: opts.Verbose}, strategy, nil
	default:
		return nil, "", fmt.Errorf("unknown observer strategy %q", opts.Strategy)
	}
}
