// Package domain models the weather inputs and render parameters of the
// storm ambiance overlay.
//
// # Data Source
//
// Readings come from the Open-Meteo forecast API. The "current" block and the
// hourly block both carry a WMO weather interpretation code plus a handful of
// continuous metrics (wind speed, precipitation, temperature, humidity and
// cloud cover). A reading is captured once and never mutated afterwards.
//
// # WMO Code Conventions
//
// The code space is 0–99, sparsely populated. The ranges the mapper recognises:
//
//	0–1    clear sky, mainly clear            → clear
//	2–3    partly cloudy, overcast            → cloudy
//	45, 48 fog, depositing rime fog           → fog
//	51–57  drizzle and freezing drizzle       → rain
//	65     rain, heavy intensity              → heavy_rain
//	61–67  rain and freezing rain             → rain
//	80–82  rain showers                       → rain
//	71–77  snow fall, snow grains             → snow
//	85–86  snow showers                       → snow
//	95–99  thunderstorm (with or without hail)→ thunder
//
// Code 65 sits inside the rain range and is tested before it. Every other code,
// including negative values and anything above 99, maps to none.
//
// # Units
//
//	Wind speed:     km/h, clamped at 0
//	Precipitation:  mm/h, clamped at 0
//	Temperature:    °C (informational, not used by the formulas)
//	Humidity:       percent 0–100 (informational)
//	Cloud cover:    percent, clamped to 0–100
//
// # Intensity
//
// [ComputeIntensity] is a pure function of (effect, metrics). Its formula table
// is shared with downstream renderers; cmd/effecttable exports it as a fixture
// and cmd/validate detects drift against that fixture.
//
// # Day Keys
//
// The cinematic ledger is keyed by calendar day in the surface's local zone,
// formatted YYYY-MM-DD. See [DayKey].
package domain
