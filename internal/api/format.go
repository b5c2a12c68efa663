package api

import "strings"

// Версии API.
const (
	VersionV21 = "v2.1"
	VersionV3  = "v3"
)

// Formatter — формат ответов одной версии API.
//
// Ресурсы и ошибки одинаковы во всех версиях, различается только обёртка.
type Formatter interface {
	Version() string

	// Resource оборачивает одиночный ресурс.
	Resource(v any) any

	// List оборачивает страницу списка.
	List(items any, page Page) any

	// Error формирует тело ответа с ошибкой.
	Error(code, message string) any
}

// Page — параметры страницы списка.
type Page struct {
	Size   int `json:"size"`
	Offset int `json:"offset"`
}

// Formatters возвращает форматтеры всех поддерживаемых версий.
func Formatters() []Formatter {
	return []Formatter{v21Formatter{}, v3Formatter{}}
}

// formatterFor выбирает форматтер по пути запроса.
// Пути вне /api/v2.1 отвечают в формате v3.
func formatterFor(path string) Formatter {
	if strings.HasPrefix(path, "/api/"+VersionV21+"/") {
		return v21Formatter{}
	}
	return v3Formatter{}
}

// v21Formatter — ресурсы без обёртки, списки с metadata.pagination.
type v21Formatter struct{}

type v21List struct {
	Items    any         `json:"items"`
	Metadata v21Metadata `json:"metadata"`
}

type v21Metadata struct {
	Pagination Page `json:"pagination"`
}

type v21Error struct {
	Message   string `json:"message"`
	ErrorCode string `json:"error_code"`
}

func (v21Formatter) Version() string { return VersionV21 }

func (v21Formatter) Resource(v any) any { return v }

func (v21Formatter) List(items any, page Page) any {
	return v21List{Items: items, Metadata: v21Metadata{Pagination: page}}
}

func (v21Formatter) Error(code, message string) any {
	return v21Error{Message: message, ErrorCode: code}
}

// v3Formatter — конверт {"data": ...} и {"error": {...}}.
type v3Formatter struct{}

func (v3Formatter) Version() string { return VersionV3 }

func (v3Formatter) Resource(v any) any { return DataResponse{Data: v} }

func (v3Formatter) List(items any, page Page) any {
	return ListResponse{Data: items, Total: page.Size, Offset: page.Offset}
}

func (v3Formatter) Error(code, message string) any {
	return ErrorResponse{Error: ErrorDetail{Code: code, Message: message}}
}
