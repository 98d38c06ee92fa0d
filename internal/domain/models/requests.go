package models

// FetchRequest binds GET /api/fetch/:symbol/:start/:end.
type FetchRequest struct {
	Symbol string `param:"symbol" validate:"required,max=32"`
	Start  string `param:"start" validate:"required,datetime=2006-01-02"`
	End    string `param:"end" validate:"required,datetime=2006-01-02"`
	Cache  string `query:"cache" default:"true" validate:"oneof=true false 1 0"`
}

func (r FetchRequest) UseCache() bool {
	return r.Cache == "true" || r.Cache == "1"
}

type RepairRequest struct {
	Symbol string `param:"symbol" validate:"required,max=32"`
	Sync   bool   `query:"sync"`
}

type FetchResponse struct {
	Symbol string `json:"symbol"`
	Start  string `json:"start"`
	End    string `json:"end"`
	Count  int    `json:"count"`
	Bars   []Bar  `json:"bars"`
}
