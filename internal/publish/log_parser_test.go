package publish

import "testing"

func TestParseLogLevel(t *testing.T) {
	tests := []struct {
		name      string
		line      string
		wantLevel string
		wantMsg   string
	}{
		{
			name:      "plain info line",
			line:      "[info] Output #0, flv, to 'rtmp://example/live/key':",
			wantLevel: "info",
			wantMsg:   "Output #0, flv, to 'rtmp://example/live/key':",
		},
		{
			name:      "error line",
			line:      "[error] Connection refused",
			wantLevel: "error",
			wantMsg:   "Connection refused",
		},
		{
			name:      "component prefix keeps component",
			line:      "[flv @ 0x55d3c0] [warning] Failed to update header",
			wantLevel: "warning",
			wantMsg:   "[flv @ 0x55d3c0] Failed to update header",
		},
		{
			name:      "no level prefix",
			line:      "frame=  100 fps= 30 q=28.0",
			wantLevel: "info",
			wantMsg:   "frame=  100 fps= 30 q=28.0",
		},
		{
			name:      "bracket without level",
			line:      "[libx264 @ 0x7f] using cpu capabilities",
			wantLevel: "info",
			wantMsg:   "[libx264 @ 0x7f] using cpu capabilities",
		},
		{
			name:      "empty line",
			line:      "",
			wantLevel: "info",
			wantMsg:   "",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			level, msg := ParseLogLevel(tt.line)
			if level != tt.wantLevel {
				t.Errorf("level = %q, want %q", level, tt.wantLevel)
			}
			if msg != tt.wantMsg {
				t.Errorf("msg = %q, want %q", msg, tt.wantMsg)
			}
		})
	}
}
