package services

import (
	"encoding/json"
	"fmt"
	"regexp"
	"sort"
	"strconv"
	"strings"

	"ruleflow/internal/models"
)

// ticketAttributes projects a ticket and its preloaded relations into a
// generic attribute map so conditions can address any field by dotted path.
func ticketAttributes(ticket *models.Ticket) map[string]interface{} {
	attrs := map[string]interface{}{}
	b, err := json.Marshal(ticket)
	if err != nil {
		return attrs
	}
	if err := json.Unmarshal(b, &attrs); err != nil {
		return map[string]interface{}{}
	}
	return attrs
}

var arrayIndexPattern = regexp.MustCompile(`^(.+)\[(\d+)\]$`)

// resolveFieldPath walks a dotted path through nested maps, descending
// null-safely. One "name[idx]" array index is supported per segment.
func resolveFieldPath(attrs map[string]interface{}, path string) interface{} {
	var current interface{} = attrs
	for _, segment := range strings.Split(path, ".") {
		name := segment
		index := -1
		if m := arrayIndexPattern.FindStringSubmatch(segment); m != nil {
			name = m[1]
			index, _ = strconv.Atoi(m[2])
		}

		obj, ok := current.(map[string]interface{})
		if !ok {
			return nil
		}
		current = obj[name]

		if index >= 0 {
			arr, ok := current.([]interface{})
			if !ok || index >= len(arr) {
				return nil
			}
			current = arr[index]
		}
	}
	return current
}

// isNullValue reports whether a resolved field counts as absent for the
// is_null / is_not_null operators: nil or the empty string.
func isNullValue(v interface{}) bool {
	if v == nil {
		return true
	}
	s, ok := v.(string)
	return ok && s == ""
}

// evaluateOperator applies one comparison operator between a resolved field
// value and the condition's configured value list. Comparisons are
// case-insensitive. For every operator except the null checks, a nil field
// value evaluates to false so missing data never throws.
func evaluateOperator(operator string, fieldValue interface{}, values models.StringList) bool {
	switch operator {
	case "is_null":
		return isNullValue(fieldValue)
	case "is_not_null":
		return !isNullValue(fieldValue)
	}

	if fieldValue == nil {
		return false
	}
	actual := strings.ToLower(fmt.Sprintf("%v", fieldValue))

	switch operator {
	case "equals", "in":
		return listContains(values, actual)
	case "not_equals", "not_in":
		return !listContains(values, actual)
	case "contains":
		for _, v := range values {
			if strings.Contains(actual, strings.ToLower(v)) {
				return true
			}
		}
		return false
	case "not_contains":
		for _, v := range values {
			if strings.Contains(actual, strings.ToLower(v)) {
				return false
			}
		}
		return true
	case "starts_with":
		for _, v := range values {
			if strings.HasPrefix(actual, strings.ToLower(v)) {
				return true
			}
		}
		return false
	case "ends_with":
		for _, v := range values {
			if strings.HasSuffix(actual, strings.ToLower(v)) {
				return true
			}
		}
		return false
	case "greater_than", "less_than", "greater_than_or_equal", "less_than_or_equal":
		return compareNumeric(operator, actual, values)
	case "between":
		if len(values) < 2 {
			return false
		}
		num, err := strconv.ParseFloat(strings.TrimSpace(actual), 64)
		if err != nil {
			return false
		}
		low, errLow := strconv.ParseFloat(strings.TrimSpace(values[0]), 64)
		high, errHigh := strconv.ParseFloat(strings.TrimSpace(values[1]), 64)
		if errLow != nil || errHigh != nil {
			return false
		}
		return num >= low && num <= high
	case "regex":
		for _, v := range values {
			re, err := regexp.Compile("(?i)" + v)
			if err != nil {
				// invalid pattern: treat as non-matching
				continue
			}
			if re.MatchString(fmt.Sprintf("%v", fieldValue)) {
				return true
			}
		}
		return false
	default:
		return false
	}
}

func listContains(values models.StringList, actual string) bool {
	for _, v := range values {
		if strings.ToLower(v) == actual {
			return true
		}
	}
	return false
}

// compareNumeric is true if any value-list entry satisfies the comparison;
// non-numeric entries are skipped, a non-numeric field value never matches.
func compareNumeric(operator, actual string, values models.StringList) bool {
	num, err := strconv.ParseFloat(strings.TrimSpace(actual), 64)
	if err != nil {
		return false
	}
	for _, v := range values {
		ref, err := strconv.ParseFloat(strings.TrimSpace(v), 64)
		if err != nil {
			continue
		}
		switch operator {
		case "greater_than":
			if num > ref {
				return true
			}
		case "less_than":
			if num < ref {
				return true
			}
		case "greater_than_or_equal":
			if num >= ref {
				return true
			}
		case "less_than_or_equal":
			if num <= ref {
				return true
			}
		}
	}
	return false
}

// conditionGroup holds the conditions sharing one group id, in sequence order.
type conditionGroup struct {
	key        string
	conditions []models.RuleCondition
}

// groupConditions partitions conditions by group id, preserving the first
// appearance order of each group. Ungrouped conditions become singleton
// groups keyed by their own id.
func groupConditions(conditions []models.RuleCondition) []conditionGroup {
	sorted := make([]models.RuleCondition, len(conditions))
	copy(sorted, conditions)
	sort.SliceStable(sorted, func(i, j int) bool { return sorted[i].Sequence < sorted[j].Sequence })

	var groups []conditionGroup
	index := map[string]int{}
	for _, cond := range sorted {
		key := cond.GroupID
		if key == "" {
			key = fmt.Sprintf("condition_%d", cond.ID)
		}
		i, ok := index[key]
		if !ok {
			i = len(groups)
			index[key] = i
			groups = append(groups, conditionGroup{key: key})
		}
		groups[i].conditions = append(groups[i].conditions, cond)
	}
	return groups
}

// evaluateRuleConditions decides whether a rule matches a ticket and returns
// a per-condition result trace. Inside a group, conditions fold left to
// right: the first result seeds the accumulator, and each subsequent
// condition combines with the running result using that condition's own
// logical operator (AND when unset). Group results combine with AND; an
// empty condition set always matches.
func evaluateRuleConditions(rule *models.Rule, attrs map[string]interface{}) (bool, map[string]bool) {
	trace := make(map[string]bool)
	if len(rule.Conditions) == 0 {
		return true, trace
	}

	matched := true
	for _, group := range groupConditions(rule.Conditions) {
		groupResult := false
		for i, cond := range group.conditions {
			result := evaluateOperator(cond.Operator, resolveFieldPath(attrs, cond.FieldPath), cond.Value)
			trace[fmt.Sprintf("condition_%d", cond.ID)] = result
			if i == 0 {
				groupResult = result
				continue
			}
			if strings.EqualFold(cond.LogicalOperator, "OR") {
				groupResult = groupResult || result
			} else {
				groupResult = groupResult && result
			}
		}
		if !groupResult {
			matched = false
		}
	}
	return matched, trace
}
