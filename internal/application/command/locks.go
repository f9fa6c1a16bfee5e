package command

import (
	"sync"
)

// UserLocks раздаёт мьютексы по ключу пользователя. Взаимное исключение
// действует на уровне пользователя: конкурентные отчёты одного студента
// сериализуются, отчёты разных студентов идут параллельно.
//
// Мьютексы не освобождаются после использования: активных пользователей
// конечное число, и карта остаётся маленькой.
type UserLocks struct {
	mu    sync.Mutex
	locks map[string]*sync.Mutex
}

// NewUserLocks создаёт пустой набор блокировок.
func NewUserLocks() *UserLocks {
	return &UserLocks{
		locks: make(map[string]*sync.Mutex),
	}
}

// Lock захватывает блокировку пользователя и возвращает функцию снятия.
func (l *UserLocks) Lock(userID string) func() {
	l.mu.Lock()
	userMu, ok := l.locks[userID]
	if !ok {
		userMu = &sync.Mutex{}
		l.locks[userID] = userMu
	}
	l.mu.Unlock()

	userMu.Lock()
	return userMu.Unlock
}
