package state

// Noop : Manager that records nothing, used when no state db is configured
type Noop struct{}

var _ Manager = Noop{}

func (Noop) StartRun(string, string, string) (int, error) { return 0, nil }

func (Noop) FinishRun(int, int64, error) error { return nil }

func (Noop) StartBatch(int, int64, int64) error { return nil }

func (Noop) FinishBatch(int, int64, int64, error) error { return nil }

func (Noop) AbortStarted() error { return nil }

func (Noop) LastRun() (*RunLog, error) { return nil, nil }

func (Noop) BatchLogs(int) ([]*BatchRunLog, error) { return nil, nil }
