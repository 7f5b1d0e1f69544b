package startup

import (
	"context"
	"fmt"
	"testing"

	"github.com/Gobusters/ectologger"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type stubDependency struct {
	name     string
	failures int
	log      *[]string
}

func (d *stubDependency) Name() string { return d.name }

func (d *stubDependency) Start(ctx context.Context) error {
	if d.failures > 0 {
		d.failures--
		return fmt.Errorf("%s unavailable", d.name)
	}
	*d.log = append(*d.log, "start "+d.name)
	return nil
}

func (d *stubDependency) Stop(ctx context.Context) error {
	*d.log = append(*d.log, "stop "+d.name)
	return nil
}

func newTestStartup(maxAttempts int) *Startup {
	logger := ectologger.NewEctoLogger(func(_ ectologger.EctoLogMessage) {})
	return NewStartup(logger, maxAttempts)
}

func TestStartup_RegistrationOrderForwardReverseStop(t *testing.T) {
	var log []string
	s := newTestStartup(1)
	s.AddDependency(&stubDependency{name: "postgres", log: &log})
	s.AddDependency(&stubDependency{name: "kafka", log: &log})
	s.AddDependency(&stubDependency{name: "graph", log: &log})

	require.NoError(t, s.Start(context.Background()))
	require.NoError(t, s.Stop(context.Background()))

	assert.Equal(t, []string{
		"start postgres", "start kafka", "start graph",
		"stop graph", "stop kafka", "stop postgres",
	}, log)
}

func TestStartup_RetrySkipsAlreadyStarted(t *testing.T) {
	var log []string
	s := newTestStartup(3)
	s.AddDependency(&stubDependency{name: "postgres", log: &log})
	s.AddDependency(&stubDependency{name: "kafka", failures: 1, log: &log})

	require.NoError(t, s.Start(context.Background()))

	// postgres came up on the first attempt and is not started again
	assert.Equal(t, []string{"start postgres", "start kafka"}, log)
}

func TestStartup_GivesUpAfterMaxAttempts(t *testing.T) {
	var log []string
	s := newTestStartup(2)
	s.AddDependency(&stubDependency{name: "kafka", failures: 5, log: &log})

	err := s.Start(context.Background())
	require.Error(t, err)
	assert.Contains(t, err.Error(), "after 2 attempts")
}
