// Package pricing 提供价格规范化与折扣计算。
//
// 各站点返回的价格文本格式极不统一（货币符号、千分位/小数点习惯、
// 占位价格等），这里把任意表示转换为单一可信的数值价格。
// 整个流水线是纯函数：无 I/O、无状态、永不 panic，解析失败一律退化为 0。
package pricing

import (
	"math"
	"regexp"
	"strconv"
	"strings"
)

// Locale 表示价格文本使用的分隔符习惯。
type Locale string

const (
	LocaleUS      Locale = "US"      // 点为小数点，逗号为千分位
	LocaleEU      Locale = "EU"      // 逗号为小数点，点为千分位
	LocaleUnknown Locale = "UNKNOWN" // 无法判断（无分隔符或数值输入）
)

// Parsed 是价格规范化的结果。
type Parsed struct {
	NumericValue   float64 // 规范化后的数值，始终 >= 0 且不为 NaN
	RawValue       string  // 原始文本，保留用于审计
	DetectedLocale Locale
	Currency       string // 推断出的货币代码，无法推断时为空
}

// currencyPatterns 按优先级排列的货币识别模式，首个命中者生效。
// 针对原始（未清洗）文本匹配，大小写不敏感。
var currencyPatterns = []struct {
	re       *regexp.Regexp
	currency string
}{
	{regexp.MustCompile(`(?i)USD`), "USD"},
	{regexp.MustCompile(`(?i)EUR?`), "EUR"},
	{regexp.MustCompile(`(?i)IQD`), "IQD"},
	{regexp.MustCompile(`د\.ع`), "IQD"},
	{regexp.MustCompile(`\$`), "USD"},
	{regexp.MustCompile(`€`), "EUR"},
	{regexp.MustCompile(`£`), "GBP"},
	{regexp.MustCompile(`¥`), "JPY"},
}

// Parse 把任意价格文本转换为规范化结果。
//
// 流水线: 清洗 -> 判定分隔符习惯 -> 规范化为点小数格式 -> 数值解析。
// 货币识别独立进行，针对原始文本。空输入返回零值结果，不报错。
func Parse(raw string) Parsed {
	if raw == "" {
		return Parsed{RawValue: "0", DetectedLocale: LocaleUnknown}
	}

	cleaned := stripNonNumeric(raw)
	locale := detectLocale(cleaned)
	normalized := normalizeToStandard(cleaned, locale)

	return Parsed{
		NumericValue:   toNumeric(normalized),
		RawValue:       raw,
		DetectedLocale: locale,
		Currency:       ExtractCurrency(raw),
	}
}

// ParseValue 处理已经是数值的价格输入（部分站点 API 直接返回数字）。
// NaN 或负值退化为 0。
func ParseValue(v float64) Parsed {
	if math.IsNaN(v) || v < 0 {
		v = 0
	}
	return Parsed{
		NumericValue:   v,
		RawValue:       strconv.FormatFloat(v, 'f', -1, 64),
		DetectedLocale: LocaleUnknown,
	}
}

// stripNonNumeric 去掉数字、点、逗号以外的所有字符。
func stripNonNumeric(s string) string {
	var b strings.Builder
	b.Grow(len(s))
	for _, r := range s {
		if (r >= '0' && r <= '9') || r == '.' || r == ',' {
			b.WriteRune(r)
		}
	}
	return b.String()
}

// detectLocale 根据最后一个点和最后一个逗号的位置判定分隔符习惯。
//
// 两者都存在时，靠后的那个是小数点。只有一个分隔符时按启发式判断：
// 分隔符后跟 3 位及以上数字视为千分位，1-2 位视为小数。
// 这条启发式对恰好 3 位小数的输入无法保证正确，属于已知的固有歧义。
func detectLocale(clean string) Locale {
	if clean == "" {
		return LocaleUnknown
	}

	dotIdx := strings.LastIndex(clean, ".")
	commaIdx := strings.LastIndex(clean, ",")

	if dotIdx > -1 && commaIdx > -1 {
		if dotIdx > commaIdx {
			return LocaleUS
		}
		return LocaleEU
	}

	if dotIdx > -1 {
		if len(clean)-dotIdx-1 > 2 {
			return LocaleEU // 点后 3+ 位，点是千分位
		}
		return LocaleUS
	}

	if commaIdx > -1 {
		if len(clean)-commaIdx-1 > 2 {
			return LocaleUS // 逗号后 3+ 位，逗号是千分位
		}
		return LocaleEU
	}

	return LocaleUnknown
}

// normalizeToStandard 把清洗后的文本按判定的 locale 转为点小数格式。
func normalizeToStandard(clean string, locale Locale) string {
	if clean == "" {
		return "0"
	}

	switch locale {
	case LocaleUS:
		// 1,234.56 -> 1234.56
		return strings.ReplaceAll(clean, ",", "")

	case LocaleEU:
		// 1.234,56 -> 1234.56
		if idx := strings.LastIndex(clean, ","); idx > -1 {
			before := strings.ReplaceAll(clean[:idx], ".", "")
			after := clean[idx+1:]
			return before + "." + after
		}
		return strings.ReplaceAll(clean, ".", "")

	default:
		// 尽力而为：靠后的分隔符按小数点处理
		dotIdx := strings.LastIndex(clean, ".")
		commaIdx := strings.LastIndex(clean, ",")
		if dotIdx > commaIdx && dotIdx > -1 {
			return strings.ReplaceAll(clean, ",", "")
		}
		if commaIdx > -1 {
			before := strings.ReplaceAll(clean[:commaIdx], ".", "")
			after := clean[commaIdx+1:]
			return before + "." + after
		}
		return strings.ReplaceAll(strings.ReplaceAll(clean, ",", ""), ".", "")
	}
}

// toNumeric 把规范化文本解析为浮点数，任何失败都退化为 0。
func toNumeric(s string) float64 {
	if s == "" {
		return 0
	}
	v, err := strconv.ParseFloat(s, 64)
	if err != nil || math.IsNaN(v) || v < 0 {
		return 0
	}
	return v
}

// ExtractCurrency 从原始价格文本中识别货币代码，无法识别时返回空串。
func ExtractCurrency(raw string) string {
	if raw == "" {
		return ""
	}
	for _, p := range currencyPatterns {
		if p.re.MatchString(raw) {
			return p.currency
		}
	}
	return ""
}

// AcceptOldPrice 判断折扣前参考价是否可信。
//
// 只有严格大于现价时才接受，否则视为站点回显了相同值
// 或数据本身颠倒，应当丢弃。
func AcceptOldPrice(price, oldPrice float64) bool {
	return oldPrice > 0 && oldPrice > price
}

// Discount 计算折扣百分比，四舍五入（.5 进位）。
// 任一价格为 0 或原价不高于现价时返回 0。
func Discount(original, sale float64) int {
	if original <= 0 || sale <= 0 || original <= sale {
		return 0
	}
	return int(math.Round((original - sale) / original * 100))
}

// Savings 计算节省金额，守卫条件与 Discount 相同。
func Savings(original, sale float64) float64 {
	if original <= 0 || sale <= 0 || original <= sale {
		return 0
	}
	return original - sale
}
