package classify

import (
	"context"

	"github.com/tphakala/docquality/internal/conf"
	"github.com/tphakala/docquality/internal/errors"
	"github.com/tphakala/docquality/internal/logger"
	"github.com/tphakala/docquality/internal/model"
)

// Load opens the configured classifier checkpoint and template store, reads
// the persisted templates and returns a ready Service.
func Load(ctx context.Context, s *conf.ClassifierSettings, opts ...Option) (*Service, error) {
	if !s.Enabled {
		return nil, errors.UnavailableError("classify", "document classification is disabled")
	}

	cp, err := model.LoadCheckpoint(s.ModelPath)
	if err != nil {
		return nil, err
	}
	if cp.Config.NumDocumentTypes != NumStandardTypes {
		return nil, errors.Newf("classifier checkpoint has %d document types, expected %d",
			cp.Config.NumDocumentTypes, NumStandardTypes).
			Component("classify").
			Category(errors.CategoryModelLoad).
			ModelContext(s.ModelPath, "classifier").
			Build()
	}

	m, err := model.NewTFLiteClassifierModel(cp, s.Threads)
	if err != nil {
		return nil, err
	}

	store, err := OpenTemplateStore(s.Templates)
	if err != nil {
		return nil, errors.Join(err, m.Close())
	}
	bank := NewTemplateBank(cp.Config.FeatureDim, store)
	loaded, err := bank.Load(ctx)
	if err != nil {
		return nil, errors.Join(err, m.Close(), bank.Close())
	}

	GetLogger().Info("document classifier loaded",
		logger.String("path", s.ModelPath),
		logger.String("template_driver", s.Templates.Driver),
		logger.Int("templates", loaded),
		logger.Int("customers", len(bank.Customers())))
	return NewService(m, bank, opts...)
}
