package rules

import (
	"go.uber.org/zap"

	"github.com/ekaya-inc/dqengine/pkg/models"
)

// EvaluateGroup runs every member of a rule group against a single value and
// combines the member outcomes by the group's logic:
//
//   - OR: the value is invalid when ANY member fails.
//   - AND: the value is invalid only when ALL members fail, so a group reads
//     as "at least one of these checks must hold".
//
// Members referencing unknown or column-mode validators are skipped; a group
// with no evaluable members passes.
func EvaluateGroup(reg *Registry, group *models.RuleGroup, value string) Outcome {
	var (
		evaluated int
		failed    int
		details   []string
	)

	for _, member := range group.Rules {
		v, ok := reg.Get(member.TypeID)
		if !ok {
			reg.logger.Warn("group member references unknown rule, skipping",
				zap.String("group", group.Name),
				zap.String("rule_type", member.TypeID))
			continue
		}
		if v.Mode() != RowMode {
			reg.logger.Warn("group member is not a row rule, skipping",
				zap.String("group", group.Name),
				zap.String("rule_type", member.TypeID))
			continue
		}

		outcome, err := SafeValidate(v, value, member.Params)
		if err != nil {
			reg.logger.Error("group member failed", zap.String("group", group.Name), zap.Error(err))
			continue
		}
		evaluated++
		if !outcome.Valid {
			failed++
			if d := outcome.Detail(); d != "" {
				details = append(details, v.DisplayName(member.Params)+": "+d)
			} else {
				details = append(details, v.DisplayName(member.Params))
			}
		}
	}

	if evaluated == 0 {
		return Pass()
	}

	switch group.Logic {
	case models.LogicAnd:
		if failed == evaluated {
			return Fail(details...)
		}
	case models.LogicOr:
		if failed > 0 {
			return Fail(details...)
		}
	}
	return Pass()
}
