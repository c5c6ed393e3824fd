package domain

import "time"

// ScheduleLease — аренда активного schedule.
//
// На каждое имя schedule в БД не больше одной записи (уникальный индекс по name).
// Владелец обновляет LastAlive каждый heartbeat; запись, не обновлявшаяся
// дольше dead threshold, может быть перехвачена другим экземпляром.
type ScheduleLease struct {
	// Name — общее имя, за которое конкурируют экземпляры.
	Name string `json:"name"`

	// InstanceID — идентификатор текущего владельца (новый при каждом подключении).
	InstanceID string `json:"instance_id"`

	// LastAlive — время последнего heartbeat владельца.
	LastAlive time.Time `json:"last_alive"`

	// Executions — число выполняющихся экземпляров по имени job.
	// Может стать отрицательным при декременте без парного инкремента.
	Executions map[string]int `json:"executions"`
}

// IsStale возвращает true, если аренда старше threshold относительно now.
func (l *ScheduleLease) IsStale(now time.Time, threshold time.Duration) bool {
	return l.LastAlive.Before(now.Add(-threshold))
}
