// Prism - Virtual Library Proxy for Emby-compatible Media Servers
// Copyright 2026 The Prism Authors
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/prism-media/prism

package filter

import (
	"fmt"
	"strconv"
	"strings"

	"github.com/prism-media/prism/internal/models"
)

// Apply returns the items satisfying every residual rule. An empty rule
// list returns the input unchanged. Rules combine with AND only; the
// filter's match_all flag is not honored here.
func Apply(items []models.Item, rules []models.FilterRule) []models.Item {
	if len(rules) == 0 {
		return items
	}

	filtered := make([]models.Item, 0, len(items))
	for _, item := range items {
		if matchesAll(item, rules) {
			filtered = append(filtered, item)
		}
	}
	return filtered
}

func matchesAll(item models.Item, rules []models.FilterRule) bool {
	for _, rule := range rules {
		if !checkCondition(item.GetPath(rule.Field), rule.Operator, rule.Value) {
			return false
		}
	}
	return true
}

// checkCondition evaluates one rule against a resolved field value.
// Missing values fail every operator except is_empty. Lists support only
// membership tests. Numeric comparison failures are silent rule failures.
func checkCondition(value any, operator, ruleValue string) bool {
	switch operator {
	case models.OpIsEmpty:
		return isEmptyValue(value)
	case models.OpIsNotEmpty:
		return !isEmptyValue(value)
	}

	if value == nil {
		return false
	}

	if list, ok := value.([]any); ok {
		switch operator {
		case models.OpContains:
			return listContains(list, ruleValue)
		case models.OpNotContains:
			return !listContains(list, ruleValue)
		}
		return false
	}

	switch operator {
	case models.OpGreaterThan, models.OpLessThan:
		itemNum, err1 := toFloat(value)
		ruleNum, err2 := strconv.ParseFloat(ruleValue, 64)
		if err1 != nil || err2 != nil {
			return false
		}
		if operator == models.OpGreaterThan {
			return itemNum > ruleNum
		}
		return itemNum < ruleNum
	}

	itemStr := strings.ToLower(stringify(value))
	ruleStr := strings.ToLower(ruleValue)

	switch operator {
	case models.OpEquals:
		return itemStr == ruleStr
	case models.OpNotEquals:
		return itemStr != ruleStr
	case models.OpContains:
		return strings.Contains(itemStr, ruleStr)
	case models.OpNotContains:
		return !strings.Contains(itemStr, ruleStr)
	}
	return false
}

func isEmptyValue(value any) bool {
	switch v := value.(type) {
	case nil:
		return true
	case string:
		return v == ""
	case []any:
		return len(v) == 0
	}
	return false
}

// listContains tests exact membership, matching the upstream's
// case-sensitive list semantics.
func listContains(list []any, ruleValue string) bool {
	for _, elem := range list {
		if s, ok := elem.(string); ok && s == ruleValue {
			return true
		}
	}
	return false
}

func toFloat(value any) (float64, error) {
	switch v := value.(type) {
	case float64:
		return v, nil
	case int:
		return float64(v), nil
	case string:
		return strconv.ParseFloat(v, 64)
	}
	return 0, fmt.Errorf("not numeric: %T", value)
}

func stringify(value any) string {
	switch v := value.(type) {
	case string:
		return v
	case bool:
		return strconv.FormatBool(v)
	case float64:
		// Integral floats print without a decimal point so year and
		// rating comparisons behave as users expect.
		if v == float64(int64(v)) {
			return strconv.FormatInt(int64(v), 10)
		}
		return strconv.FormatFloat(v, 'f', -1, 64)
	}
	return fmt.Sprintf("%v", value)
}
