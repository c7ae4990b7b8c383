package calendar

const (
	DefaultPageSize = 20
	MaxPageSize     = 100
)

// PageRequest: страница (с 1) и её размер в том виде, как их прислал клиент.
type PageRequest struct {
	Page int
	Size int
}

// Normalize подставляет первую страницу и размер по умолчанию, размер режется до MaxPageSize.
func (r PageRequest) Normalize() PageRequest {
	if r.Page <= 0 {
		r.Page = 1
	}
	switch {
	case r.Size <= 0:
		r.Size = DefaultPageSize
	case r.Size > MaxPageSize:
		r.Size = MaxPageSize
	}
	return r
}

// Offset для LIMIT/OFFSET. Запрос должен быть нормализован.
func (r PageRequest) Offset() int {
	return (r.Page - 1) * r.Size
}

// Page: кусок списка и его место в общем наборе.
type Page[T any] struct {
	Items   []T
	Request PageRequest
	Total   int
}

func (p Page[T]) HasNext() bool {
	return p.Request.Offset()+len(p.Items) < p.Total
}

func (p Page[T]) HasPrev() bool {
	return p.Request.Page > 1
}

// Paginate режет уже загруженный список, например правила цен одного чартера.
func Paginate[T any](items []T, req PageRequest) Page[T] {
	req = req.Normalize()
	total := len(items)

	start := min(req.Offset(), total)
	end := min(start+req.Size, total)

	return Page[T]{Items: items[start:end], Request: req, Total: total}
}
