// Package listquery отвечает за двустороннее соответствие между фильтрами
// списочных страниц и строкой запроса URL.
package listquery

import (
	"net/url"
	"strconv"
)

// All — значение фильтра "без фильтра". В канонической строке запроса
// такие значения опускаются, как и page=1.
const All = "all"

// Filters описывает эффективное состояние фильтров списочной страницы.
type Filters struct {
	Page     int
	Type     string
	Category string
}

// Parse извлекает фильтры из строки запроса. Отсутствующий или
// некорректный номер страницы трактуется как 1, пустые фильтры — как All.
func Parse(q url.Values) Filters {
	f := Filters{
		Page:     1,
		Type:     All,
		Category: All,
	}

	if page, err := strconv.Atoi(q.Get("page")); err == nil && page >= 1 {
		f.Page = page
	}
	if v := q.Get("type"); v != "" {
		f.Type = v
	}
	if v := q.Get("category"); v != "" {
		f.Category = v
	}

	return f
}

// Query строит каноническую строку запроса: page=1 и значения All
// не попадают в URL.
func (f Filters) Query() url.Values {
	q := url.Values{}

	if f.Page > 1 {
		q.Set("page", strconv.Itoa(f.Page))
	}
	if f.Type != "" && f.Type != All {
		q.Set("type", f.Type)
	}
	if f.Category != "" && f.Category != All {
		q.Set("category", f.Category)
	}

	return q
}

// Encode возвращает каноническую строку запроса в закодированном виде.
func (f Filters) Encode() string {
	return f.Query().Encode()
}

// ClampPage ограничивает запрошенную страницу доступным диапазоном.
// Если после смены фильтра результат сжался, страница прижимается к
// последней существующей, а не приводит к ошибке.
func ClampPage(requested, totalPages int) int {
	if totalPages < 1 {
		totalPages = 1
	}
	if requested < 1 {
		return 1
	}
	if requested > totalPages {
		return totalPages
	}
	return requested
}
