// Package handlers содержит встроенные handler'ы jobs, которые можно
// подключить из конфигурации по типу: http, delay, log.
package handlers

import (
	"errors"
	"fmt"
	"sort"
	"time"

	"github.com/TNG/momo-scheduler-sub000/internal/executor"
)

var (
	// ErrUnknownHandler — нет handler'а для данного типа.
	ErrUnknownHandler = errors.New("unknown handler type")

	// ErrHTTPRequest — HTTP-запрос завершился ошибкой.
	ErrHTTPRequest = errors.New("http request failed")
)

// Registry — реестр handler'ов по типу.
type Registry struct {
	handlers map[string]executor.Handler
}

// NewRegistry создаёт реестр со встроенными handler'ами: http, delay, log.
func NewRegistry() *Registry {
	r := &Registry{handlers: make(map[string]executor.Handler)}
	r.Register("http", HTTP)
	r.Register("delay", Delay)
	r.Register("log", Log)
	return r
}

// Register добавляет handler для типа.
func (r *Registry) Register(handlerType string, handler executor.Handler) {
	r.handlers[handlerType] = handler
}

// Get возвращает handler для типа.
func (r *Registry) Get(handlerType string) (executor.Handler, error) {
	handler, ok := r.handlers[handlerType]
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrUnknownHandler, handlerType)
	}
	return handler, nil
}

// Types возвращает зарегистрированные типы по алфавиту.
func (r *Registry) Types() []string {
	types := make([]string, 0, len(r.handlers))
	for t := range r.handlers {
		types = append(types, t)
	}
	sort.Strings(types)
	return types
}

// getString извлекает строку из map с default значением.
func getString(m map[string]any, key, defaultVal string) string {
	if val, ok := m[key]; ok {
		if s, ok := val.(string); ok {
			return s
		}
	}
	return defaultVal
}

// getDuration извлекает длительность: строка Go duration ("1.5s")
// или число секунд.
func getDuration(m map[string]any, key string, defaultVal time.Duration) time.Duration {
	val, ok := m[key]
	if !ok {
		return defaultVal
	}

	var d time.Duration
	switch v := val.(type) {
	case string:
		parsed, err := time.ParseDuration(v)
		if err != nil {
			return defaultVal
		}
		d = parsed
	case float64:
		d = time.Duration(v * float64(time.Second))
	case int:
		d = time.Duration(v) * time.Second
	}

	if d <= 0 {
		return defaultVal
	}
	return d
}

// truncate обрезает строку до указанной длины.
func truncate(s string, maxLen int) string {
	if len(s) <= maxLen {
		return s
	}
	return s[:maxLen] + "..."
}
