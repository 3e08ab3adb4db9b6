package weather

import "math/rand/v2"

// syntheticRecords 是无 API key 或开发模式下使用的固定数据。
var syntheticRecords = []Record{
	{City: "Goiânia, GO", Temp: 31, Condition: "Sunny", Humidity: 42, WindSpeed: 10},
	{City: "São Paulo, SP", Temp: 28, Condition: "Nublado", Humidity: 65, WindSpeed: 15},
	{City: "Rio de Janeiro, RJ", Temp: 32, Condition: "Ensolarado", Humidity: 55, WindSpeed: 12},
	{City: "Belo Horizonte, MG", Temp: 29, Condition: "Parcialmente Nublado", Humidity: 48, WindSpeed: 8},
}

// SyntheticRecords 返回全部合成记录的副本，条件标签已经过翻译。
func SyntheticRecords() []Record {
	out := make([]Record, len(syntheticRecords))
	for i, rec := range syntheticRecords {
		rec.Condition = TranslateCondition("", rec.Condition)
		out[i] = rec
	}
	return out
}

// synthetic 随机挑选一条合成记录。pick 为空时使用 math/rand/v2。
func synthetic(pick func(n int) int) Record {
	if pick == nil {
		pick = rand.IntN
	}
	records := SyntheticRecords()
	i := pick(len(records))
	if i < 0 || i >= len(records) {
		i = 0
	}
	return records[i]
}
