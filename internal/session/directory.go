package session

import (
	"sync"

	"github.com/victornm/quizlive/internal/domain"
)

// Binding records which session a live connection belongs to and in what
// capacity. PlayerID is only meaningful for the player role.
type Binding struct {
	QuizCode string
	Role     domain.Role
	PlayerID int
}

// Directory maps connection ids to their session binding, used to route
// cleanup on disconnect.
type Directory struct {
	mu       sync.RWMutex
	bindings map[string]Binding
}

func NewDirectory() *Directory {
	return &Directory{
		bindings: make(map[string]Binding),
	}
}

func (d *Directory) BindHost(connectionID, quizCode string) {
	d.mu.Lock()
	defer d.mu.Unlock()

	d.bindings[connectionID] = Binding{QuizCode: quizCode, Role: domain.RoleHost}
}

func (d *Directory) BindPlayer(connectionID, quizCode string, playerID int) {
	d.mu.Lock()
	defer d.mu.Unlock()

	d.bindings[connectionID] = Binding{QuizCode: quizCode, Role: domain.RolePlayer, PlayerID: playerID}
}

func (d *Directory) Lookup(connectionID string) (Binding, bool) {
	d.mu.RLock()
	defer d.mu.RUnlock()

	b, ok := d.bindings[connectionID]
	return b, ok
}

// Unbind removes and returns the prior binding. Unknown connections are a
// no-op, so it is safe to call on every close.
func (d *Directory) Unbind(connectionID string) (Binding, bool) {
	d.mu.Lock()
	defer d.mu.Unlock()

	b, ok := d.bindings[connectionID]
	if ok {
		delete(d.bindings, connectionID)
	}

	return b, ok
}
