// Package weather implements the client-side weather cache of the studio app.
//
// Service.GetWeatherData resolves a location, fetches current conditions and
// persists both with a TTL in namespaced client storage. It never fails: when
// any step breaks it degrades to the last persisted record (of any age) and
// finally to a synthetic placeholder, reporting the tier it used in
// Report.Source together with the error that caused the degradation.
package weather
