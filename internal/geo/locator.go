// Package geo - коллаборатор геолокации источника трафика.
package geo

import "context"

// Locator возвращает геоданные по IP. Пустая карта - "нет данных", не ошибка.
type Locator interface {
	Locate(ctx context.Context, ip string) map[string]string
}

// Noop - геолокация не подключена, всегда пустой результат.
type Noop struct{}

func (Noop) Locate(context.Context, string) map[string]string {
	return map[string]string{}
}
