package weather

import (
	"strings"
	"unicode"
	"unicode/utf8"
)

// descriptionLabels 以小写描述为键。
var descriptionLabels = map[string]string{
	"clear sky":               "céu limpo",
	"few clouds":              "poucas nuvens",
	"scattered clouds":        "nuvens dispersas",
	"broken clouds":           "nuvens quebradas",
	"overcast clouds":         "nublado",
	"light rain":              "chuva fraca",
	"moderate rain":           "chuva moderada",
	"heavy rain":              "chuva forte",
	"light intensity drizzle": "garoa fraca",
	"sunny":                   "ensolarado",
	"clear":                   "céu limpo",
	"clouds":                  "nublado",
	"rain":                    "chuva",
	"drizzle":                 "garoa",
	"thunderstorm":            "tempestade",
	"snow":                    "neve",
	"mist":                    "névoa",
	"fog":                     "neblina",
	"haze":                    "neblina",
}

// mainLabels 以供应商 main 字段原样为键。
var mainLabels = map[string]string{
	"Clear":        "Céu Limpo",
	"Clouds":       "Nublado",
	"Rain":         "Chuva",
	"Drizzle":      "Garoa",
	"Thunderstorm": "Tempestade",
	"Snow":         "Neve",
	"Mist":         "Névoa",
	"Fog":          "Neblina",
	"Haze":         "Neblina",
	"Dust":         "Poeira",
	"Sand":         "Areia",
	"Ash":          "Cinzas",
	"Squall":       "Temporal",
	"Tornado":      "Tornado",
}

// TranslateCondition 把供应商的英文天气描述映射为葡萄牙语标签。
// 先查描述表，再查 main 表；都未命中时原样返回并仅大写首字母。
func TranslateCondition(main, description string) string {
	if label, ok := descriptionLabels[strings.ToLower(description)]; ok {
		return capitalizeFirst(label)
	}
	if label, ok := mainLabels[main]; ok {
		return label
	}
	return capitalizeFirst(description)
}

func capitalizeFirst(text string) string {
	r, size := utf8.DecodeRuneInString(text)
	if r == utf8.RuneError {
		return text
	}
	return string(unicode.ToUpper(r)) + text[size:]
}

// translated 返回标签是否来自翻译表，供调试日志使用。
func translated(main, description string) bool {
	if _, ok := descriptionLabels[strings.ToLower(description)]; ok {
		return true
	}
	_, ok := mainLabels[main]
	return ok
}
