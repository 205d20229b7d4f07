package command

import "testing"

func TestExtract(t *testing.T) {
	tests := []struct {
		name string
		text string
		want Action
		ok   bool
	}{
		{
			name: "whatsapp command with prose",
			text: "Ok! ```json\n{\"action\":\"whatsapp\",\"contact\":\"Cris\",\"message\":\"oi\"}\n```",
			want: Action{Action: "whatsapp", Contact: "Cris", Message: "oi"},
			ok:   true,
		},
		{
			name: "call command with context",
			text: "Vou ligar. ```json\n{\"action\":\"call\",\"contact\":\"Filho\",\"context\":\"avisar do almoço\"}\n```",
			want: Action{Action: "call", Contact: "Filho", Context: "avisar do almoço"},
			ok:   true,
		},
		{
			name: "no fence",
			text: "Apenas uma resposta normal.",
			ok:   false,
		},
		{
			name: "malformed payload",
			text: "```json\n{not valid}\n```",
			ok:   false,
		},
		{
			name: "missing action field",
			text: "```json\n{\"contact\":\"Cris\"}\n```",
			ok:   false,
		},
		{
			name: "unclosed fence",
			text: "```json\n{\"action\":\"call\",\"contact\":\"Cris\"}",
			ok:   false,
		},
		{
			name: "untagged fence ignored",
			text: "```\n{\"action\":\"call\",\"contact\":\"Cris\"}\n```",
			ok:   false,
		},
		{
			name: "first match wins",
			text: "```json\n{\"action\":\"call\",\"contact\":\"Cris\"}\n``` depois ```json\n{\"action\":\"whatsapp\",\"contact\":\"Filho\"}\n```",
			want: Action{Action: "call", Contact: "Cris"},
			ok:   true,
		},
		{
			name: "untagged fence before tagged one",
			text: "```\ncode\n``` e ```json\n{\"action\":\"call\",\"contact\":\"Cris\"}\n```",
			want: Action{Action: "call", Contact: "Cris"},
			ok:   true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, ok := Extract(tt.text)
			if ok != tt.ok {
				t.Fatalf("ok = %v, want %v", ok, tt.ok)
			}
			if ok && got != tt.want {
				t.Errorf("got %+v, want %+v", got, tt.want)
			}
		})
	}
}

func TestStrip(t *testing.T) {
	tests := []struct {
		name string
		text string
		want string
	}{
		{
			name: "strips block and trims",
			text: "Ok! ```json\n{\"action\":\"whatsapp\",\"contact\":\"Cris\",\"message\":\"oi\"}\n```",
			want: "Ok!",
		},
		{
			name: "block only leaves empty string",
			text: "```json\n{\"action\":\"call\",\"contact\":\"Cris\"}\n```",
			want: "",
		},
		{
			name: "no block unchanged",
			text: "Tudo bem?",
			want: "Tudo bem?",
		},
		{
			name: "prose on both sides",
			text: "Claro. ```json\n{\"action\":\"call\",\"contact\":\"Cris\"}\n``` Já estou ligando.",
			want: "Claro.  Já estou ligando.",
		},
		{
			name: "unclosed fence unchanged",
			text: "Ok! ```json\n{\"action\":\"call\"",
			want: "Ok! ```json\n{\"action\":\"call\"",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := Strip(tt.text); got != tt.want {
				t.Errorf("Strip(%q) = %q, want %q", tt.text, got, tt.want)
			}
		})
	}
}

func TestNumberPolicy(t *testing.T) {
	p := NumberPolicy{DefaultCountryCode: "55"}

	tests := []struct {
		raw        string
		normalized string
		digits     string
	}{
		{"+55 11 91234-5678", "+5511912345678", "5511912345678"},
		// Already carries the country code: keep it, but the output still
		// gets the + prefix like every other normalized number.
		{"5511999999999", "+5511999999999", "5511999999999"},
		{"(11) 98888-7777", "+5511988887777", "5511988887777"},
		{"", "", ""},
		{"abc", "", ""},
	}

	for _, tt := range tests {
		if got := p.Normalize(tt.raw); got != tt.normalized {
			t.Errorf("Normalize(%q) = %q, want %q", tt.raw, got, tt.normalized)
		}
		if got := p.Digits(tt.raw); got != tt.digits {
			t.Errorf("Digits(%q) = %q, want %q", tt.raw, got, tt.digits)
		}
	}
}

func TestNumberPolicy_NoCountryCode(t *testing.T) {
	p := NumberPolicy{}
	if got := p.Normalize("11 98888-7777"); got != "11988887777" {
		t.Errorf("Normalize without country code = %q", got)
	}
}
