package session

import "testing"

func TestCanTransition(t *testing.T) {
	tests := []struct {
		name string
		from State
		to   State
		want bool
	}{
		// restore
		{"RESTORING to SUCCESS", StateRestoring, StateSuccess, true},
		{"RESTORING to IDLE", StateRestoring, StateIdle, true},
		{"RESTORING to LOADING", StateRestoring, StateLoading, false},
		// submit and settle
		{"IDLE to LOADING", StateIdle, StateLoading, true},
		{"LOADING to SUCCESS", StateLoading, StateSuccess, true},
		{"LOADING to ERROR", StateLoading, StateError, true},
		// retry, edit, extend
		{"SUCCESS to LOADING", StateSuccess, StateLoading, true},
		{"ERROR to LOADING", StateError, StateLoading, true},
		{"ERROR to IDLE", StateError, StateIdle, true},
		{"SUCCESS to IDLE", StateSuccess, StateIdle, true},
		// new project and history
		{"LOADING to IDLE", StateLoading, StateIdle, true},
		{"IDLE to IDLE", StateIdle, StateIdle, true},
		{"SUCCESS to SUCCESS", StateSuccess, StateSuccess, true},
		{"IDLE to SUCCESS", StateIdle, StateSuccess, true},
		// invalid
		{"IDLE to ERROR", StateIdle, StateError, false},
		{"SUCCESS to ERROR", StateSuccess, StateError, false},
		{"LOADING to LOADING", StateLoading, StateLoading, false},
		{"anything to RESTORING", StateIdle, StateRestoring, false},
		{"unknown state", State("BOGUS"), StateIdle, false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := canTransition(tt.from, tt.to); got != tt.want {
				t.Errorf("canTransition(%s, %s) = %v, want %v", tt.from, tt.to, got, tt.want)
			}
		})
	}
}
