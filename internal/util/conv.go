package util

import (
	"strconv"
	"strings"
)

// MustParseUint 将字符串转换为无符号整数，解析失败时返回 0
func MustParseUint(s string) uint {
	id, _ := strconv.ParseUint(s, 10, 32)
	return uint(id)
}

// ParsePrice 解析课程价格。"Free"/空串视为 0，金额允许带货币符号与千分位。
func ParsePrice(price string) float64 {
	p := strings.TrimSpace(price)
	if p == "" || strings.EqualFold(p, "free") {
		return 0
	}
	p = strings.TrimPrefix(p, "$")
	p = strings.ReplaceAll(p, ",", "")
	v, err := strconv.ParseFloat(p, 64)
	if err != nil || v < 0 {
		return 0
	}
	return v
}

// ParseDurationMinutes 从 "10 min" 这类展示字符串里取分钟数，
// 非数字开头一律按 0 计（只用于聚合求和）。
func ParseDurationMinutes(duration string) int {
	d := strings.TrimSpace(duration)
	if d == "" {
		return 0
	}
	i := 0
	for i < len(d) && d[i] >= '0' && d[i] <= '9' {
		i++
	}
	if i == 0 {
		return 0
	}
	n, err := strconv.Atoi(d[:i])
	if err != nil {
		return 0
	}
	return n
}
