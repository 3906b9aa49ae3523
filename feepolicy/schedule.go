package feepolicy

import (
	"os"

	"github.com/blnkfinance/payroute/model"
	"github.com/pkg/errors"
	"gopkg.in/yaml.v3"
)

// LoadSchedule reads a YAML fee schedule. Fields left out of the file keep
// the values of model.DefaultFeeSchedule. An empty path returns the default.
//
//	base_rates:
//	  generic: 50
//	  preferred: 30
//	default_rate: 50
//	tier_discounts: [0, 25, 50, 75]
//	token_classes:
//	  usdc: preferred
func LoadSchedule(path string) (model.FeeSchedule, error) {
	schedule := model.DefaultFeeSchedule()
	if path == "" {
		return schedule, nil
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return model.FeeSchedule{}, errors.Wrapf(err, "reading fee schedule %s", path)
	}
	return ParseSchedule(data)
}

// ParseSchedule decodes a YAML fee schedule over the defaults and validates it.
func ParseSchedule(data []byte) (model.FeeSchedule, error) {
	schedule := model.DefaultFeeSchedule()
	if err := yaml.Unmarshal(data, &schedule); err != nil {
		return model.FeeSchedule{}, errors.Wrap(err, "decoding fee schedule")
	}
	if schedule.TokenClasses == nil {
		schedule.TokenClasses = map[string]model.TokenClass{}
	}
	if err := schedule.Validate(); err != nil {
		return model.FeeSchedule{}, err
	}
	return schedule, nil
}
