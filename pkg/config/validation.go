package config

import (
	stderrors "errors"
	"fmt"
	"reflect"
	"strings"

	"github.com/go-playground/validator/v10"

	"github.com/ducminhle1904/regime-optimizer/internal/backtest"
	"github.com/ducminhle1904/regime-optimizer/internal/errors"
	"github.com/ducminhle1904/regime-optimizer/pkg/data"
	"github.com/ducminhle1904/regime-optimizer/pkg/optimization"
	"github.com/ducminhle1904/regime-optimizer/pkg/types"
)

var validate = newValidator()

func newValidator() *validator.Validate {
	v := validator.New()
	v.RegisterTagNameFunc(func(fld reflect.StructField) string {
		name := strings.SplitN(fld.Tag.Get("yaml"), ",", 2)[0]
		if name == "-" {
			return ""
		}
		if name == "" {
			return fld.Name
		}
		return name
	})
	return v
}

// Validate checks struct constraints first and then the cross-field rules
// that tags cannot express. Every failure is a ConfigError naming the field.
func Validate(cfg *SearchConfig) error {
	if err := validate.Struct(cfg); err != nil {
		return fieldError(err)
	}

	if _, err := optimization.NewHyperbandPruner(cfg.RegimeSearch.Pruner); err != nil {
		return errors.WrapConfigError(err, "config", "regime_search.pruner")
	}
	if _, err := optimization.NewHyperbandPruner(cfg.SignalSearch.Pruner); err != nil {
		return errors.WrapConfigError(err, "config", "signal_search.pruner")
	}
	if err := cfg.RegimeSearch.Score.Validate(); err != nil {
		return errors.WrapConfigError(err, "config", "regime_search.score")
	}
	if cfg.Template != nil {
		if err := cfg.Template.ValidateTemplate(); err != nil {
			return errors.WrapConfigError(err, "config", "template")
		}
	}

	for i, k := range cfg.SignalSearch.Indicators {
		if !backtest.Searchable(k) {
			return errors.NewConfigError("config", fmt.Sprintf("signal_search.indicators[%d]", i), "%s has no signal rule", k)
		}
	}
	for i, s := range cfg.SignalSearch.Sides {
		if _, err := types.ParseSide(string(s)); err != nil {
			return errors.WrapConfigError(err, "config", fmt.Sprintf("signal_search.sides[%d]", i))
		}
	}
	for i, p := range cfg.SignalSearch.Purposes {
		if _, err := types.ParsePurpose(string(p)); err != nil {
			return errors.WrapConfigError(err, "config", fmt.Sprintf("signal_search.purposes[%d]", i))
		}
	}

	if cfg.Data.Period != "" {
		if _, ok := data.ParseTrailingPeriod(cfg.Data.Period); !ok {
			return errors.NewConfigError("config", "data.period", "invalid trailing period %q", cfg.Data.Period)
		}
	}
	if cfg.Data.Start != "" && cfg.Data.End != "" && cfg.Data.End < cfg.Data.Start {
		return errors.NewConfigError("config", "data.end", "end %s is before start %s", cfg.Data.End, cfg.Data.Start)
	}
	if cfg.Data.Source == SourceBybit && cfg.Data.Symbol == "" {
		return errors.NewConfigError("config", "data.symbol", "symbol is required for the bybit source")
	}
	return nil
}

// fieldError converts the first validator failure to a ConfigError
func fieldError(err error) error {
	var verrs validator.ValidationErrors
	if !stderrors.As(err, &verrs) || len(verrs) == 0 {
		return errors.NewConfigError("config", "", "%v", err)
	}
	fe := verrs[0]
	return errors.NewConfigError("config", fieldPath(fe.Namespace()), "%s", message(fe))
}

// fieldPath turns "SearchConfig.regime_search.trials" into "regime_search.trials"
func fieldPath(namespace string) string {
	if i := strings.IndexByte(namespace, '.'); i >= 0 {
		return namespace[i+1:]
	}
	return namespace
}

func message(fe validator.FieldError) string {
	switch fe.Tag() {
	case "required", "required_without":
		return "is required"
	case "oneof":
		return fmt.Sprintf("must be one of: %s (got %v)", strings.ReplaceAll(fe.Param(), " ", ", "), fe.Value())
	case "eq":
		return fmt.Sprintf("must equal %s (got %v)", fe.Param(), fe.Value())
	case "gt", "gtfield":
		return fmt.Sprintf("must be greater than %s (got %v)", fe.Param(), fe.Value())
	case "gte":
		return fmt.Sprintf("must be at least %s (got %v)", fe.Param(), fe.Value())
	case "lt":
		return fmt.Sprintf("must be less than %s (got %v)", fe.Param(), fe.Value())
	case "lte":
		return fmt.Sprintf("must be at most %s (got %v)", fe.Param(), fe.Value())
	case "datetime":
		return fmt.Sprintf("must be a date formatted as %s (got %v)", fe.Param(), fe.Value())
	}
	return fmt.Sprintf("violates %s=%s (got %v)", fe.Tag(), fe.Param(), fe.Value())
}
