package quality

import (
	"github.com/tphakala/docquality/internal/conf"
	"github.com/tphakala/docquality/internal/logger"
	"github.com/tphakala/docquality/internal/model"
)

// LoadObserver is told about every model load attempt.
type LoadObserver interface {
	RecordModelLoad(model string, err error)
}

// Load opens the configured checkpoint and wraps it in a Predictor. The
// observer, when not nil, records the outcome.
func Load(s *conf.QualitySettings, observer LoadObserver, opts ...Option) (*Predictor, error) {
	p, err := load(s, opts)
	if observer != nil {
		observer.RecordModelLoad(s.ModelPath, err)
	}
	return p, err
}

func load(s *conf.QualitySettings, opts []Option) (*Predictor, error) {
	cp, err := model.LoadCheckpoint(s.ModelPath)
	if err != nil {
		return nil, err
	}
	m, err := model.NewTFLiteQualityModel(cp, s.Threads)
	if err != nil {
		return nil, err
	}
	GetLogger().Debug("quality model loaded",
		logger.String("path", s.ModelPath),
		logger.Int64("epoch", cp.Epoch))
	return NewPredictor(m, append([]Option{WithMonitoring(s.Monitoring)}, opts...)...)
}
