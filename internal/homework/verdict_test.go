package homework

import (
	"errors"
	"testing"
)

func TestFormatVerdict(t *testing.T) {
	t.Parallel()
	tests := []struct {
		name    string
		hw      Homework
		want    string
		wantErr error
	}{
		{
			name: "reviewing",
			hw:   Homework{Name: "hw_sprint1", Status: StatusReviewing, HasName: true, HasStatus: true},
			want: `Изменился статус проверки работы "hw_sprint1". Работа взята на проверку ревьюером.`,
		},
		{
			name: "approved",
			hw:   Homework{Name: "hw_sprint1", Status: StatusApproved, HasName: true, HasStatus: true},
			want: `Изменился статус проверки работы "hw_sprint1". Работа проверена: ревьюеру всё понравилось. Ура!`,
		},
		{
			name: "rejected",
			hw:   Homework{Name: "hw_sprint1", Status: StatusRejected, HasName: true, HasStatus: true},
			want: `Изменился статус проверки работы "hw_sprint1". Работа проверена: у ревьюера есть замечания.`,
		},
		{
			name:    "unknown status",
			hw:      Homework{Name: "hw", Status: "lost", HasName: true, HasStatus: true},
			wantErr: ErrUnknownStatus,
		},
		{
			name:    "missing name",
			hw:      Homework{Status: StatusApproved, HasStatus: true},
			wantErr: ErrMissingKey,
		},
		{
			name:    "missing status",
			hw:      Homework{Name: "hw", HasName: true},
			wantErr: ErrMissingKey,
		},
	}
	for _, tt := range tests {
		tt := tt
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			got, err := FormatVerdict(tt.hw)
			if tt.wantErr != nil {
				if !errors.Is(err, tt.wantErr) {
					t.Fatalf("FormatVerdict() error = %v, want %v", err, tt.wantErr)
				}
				return
			}
			if err != nil {
				t.Fatalf("FormatVerdict() error: %v", err)
			}
			if got != tt.want {
				t.Fatalf("FormatVerdict() = %q, want %q", got, tt.want)
			}
		})
	}
}
