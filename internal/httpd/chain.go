package httpd

import (
	"net/http"
	"strings"
)

// Gatekeeper — звено цепочки предобработки запросов.
// Pattern ограничивает область действия префиксом пути;
// пустой Pattern означает все запросы.
// Handle возвращает false, чтобы остановить обработку —
// в этом случае gatekeeper сам записывает ответ.
type Gatekeeper struct {
	Pattern string
	Handle  func(w http.ResponseWriter, r *http.Request) bool
}

// Chain — упорядоченная цепочка gatekeeper'ов.
// Порядок добавления определяет порядок выполнения.
type Chain struct {
	gatekeepers []Gatekeeper
}

// NewChain создаёт пустую цепочку.
func NewChain() *Chain {
	return &Chain{}
}

// Use добавляет gatekeeper в конец цепочки.
func (c *Chain) Use(g Gatekeeper) {
	c.gatekeepers = append(c.gatekeepers, g)
}

// Run выполняет цепочку для запроса.
// Возвращает false, если какой-либо gatekeeper остановил обработку.
func (c *Chain) Run(w http.ResponseWriter, r *http.Request) bool {
	for _, g := range c.gatekeepers {
		if g.Pattern != "" && !strings.HasPrefix(r.URL.Path, g.Pattern) {
			continue
		}
		if !g.Handle(w, r) {
			return false
		}
	}
	return true
}
