// Пакет httpd — собственный HTTP-фреймворк Channel Store:
// таблица маршрутов с точным совпадением пути, цепочка gatekeeper'ов
// с сигналом остановки и сервер с ограничением одновременных подключений.
package httpd

import (
	"fmt"
	"log/slog"
	"net/http"
	"strings"

	apierrors "github.com/bigkaa/chanstore/internal/api/errors"
)

// HandlerFunc — обработчик зарегистрированного маршрута.
type HandlerFunc func(w http.ResponseWriter, r *http.Request)

// Route — один маршрут контроллера: HTTP-метод, подпуть и обработчик.
// Пустой SubPath означает маршрут на базовом пути контроллера.
type Route struct {
	Method  string
	SubPath string
	Handler HandlerFunc
}

// Controller — группа маршрутов с общим базовым путём.
type Controller interface {
	// BasePath возвращает базовый путь контроллера, например /api/v1/files.
	BasePath() string
	// Routes возвращает маршруты контроллера.
	Routes() []Route
}

// routeKey — ключ таблицы маршрутов: метод + полный путь.
type routeKey struct {
	method string
	path   string
}

// Router — таблица маршрутов с точным совпадением пути.
// Параметров пути нет: идентификаторы передаются query-строкой.
// Заполняется один раз при старте, после чего только читается,
// поэтому синхронизация не требуется.
type Router struct {
	routes map[routeKey]HandlerFunc
	// paths — множество известных путей для различения 404 и 405
	paths  map[string]bool
	chain  *Chain
	logger *slog.Logger
}

// NewRouter создаёт пустую таблицу маршрутов.
func NewRouter(chain *Chain, logger *slog.Logger) *Router {
	return &Router{
		routes: make(map[routeKey]HandlerFunc),
		paths:  make(map[string]bool),
		chain:  chain,
		logger: logger.With(slog.String("component", "router")),
	}
}

// Register добавляет все маршруты контроллера в таблицу.
// Возвращает ошибку при пустом базовом пути, отсутствии маршрутов
// или дублировании пары метод+путь.
func (rt *Router) Register(c Controller) error {
	base := c.BasePath()
	if base == "" {
		return fmt.Errorf("контроллер %T: пустой базовый путь", c)
	}
	if !strings.HasPrefix(base, "/") {
		return fmt.Errorf("контроллер %T: базовый путь %q должен начинаться с /", c, base)
	}

	routes := c.Routes()
	if len(routes) == 0 {
		return fmt.Errorf("контроллер %T: нет маршрутов", c)
	}

	for _, route := range routes {
		if route.Handler == nil {
			return fmt.Errorf("контроллер %T: маршрут %s %q без обработчика", c, route.Method, route.SubPath)
		}

		path := base
		if route.SubPath != "" {
			path = base + "/" + strings.TrimPrefix(route.SubPath, "/")
		}

		key := routeKey{method: route.Method, path: path}
		if _, exists := rt.routes[key]; exists {
			return fmt.Errorf("дублирующийся маршрут: %s %s", route.Method, path)
		}

		rt.routes[key] = route.Handler
		rt.paths[path] = true

		rt.logger.Debug("Маршрут зарегистрирован",
			slog.String("method", route.Method),
			slog.String("path", path),
		)
	}

	return nil
}

// ServeHTTP — вход фреймворка: цепочка gatekeeper'ов, затем таблица маршрутов.
// Паника в gatekeeper'е или обработчике перехватывается и превращается в 500.
func (rt *Router) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	defer func() {
		if rec := recover(); rec != nil {
			rt.logger.Error("Паника при обработке запроса",
				slog.String("method", r.Method),
				slog.String("path", r.URL.Path),
				slog.Any("panic", rec),
			)
			apierrors.InternalError(w, "failed to handle request")
		}
	}()

	if !rt.chain.Run(w, r) {
		// Gatekeeper уже записал ответ
		return
	}

	handler, ok := rt.routes[routeKey{method: r.Method, path: r.URL.Path}]
	if !ok {
		if rt.paths[r.URL.Path] {
			apierrors.MethodNotAllowed(w, fmt.Sprintf("метод %s не поддерживается для %s", r.Method, r.URL.Path))
			return
		}
		apierrors.NotFound(w, fmt.Sprintf("путь %s не найден", r.URL.Path))
		return
	}

	handler(w, r)
}
