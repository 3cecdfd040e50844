package keyboard

import "testing"

func TestInlineButtonsOnePerRow(t *testing.T) {
	m := InlineButtons([]InlineBtn{{Text: "English", Data: "lang_en"}, {Text: "हिंदी", Data: "lang_hi"}})
	if len(m.InlineKeyboard) != 2 {
		t.Fatalf("rows = %d", len(m.InlineKeyboard))
	}
	if got := m.InlineKeyboard[1][0]; got.Text != "हिंदी" || got.Data != "lang_hi" || got.Unique != "" {
		t.Fatalf("unexpected button %+v", got)
	}
}

func TestInlineButtonsRowsAndData(t *testing.T) {
	m := InlineButtonsRows([]InlineBtn{{Text: "a", Data: "x"}, {Text: "b", Data: "y"}})
	if len(m.InlineKeyboard) != 1 || len(m.InlineKeyboard[0]) != 2 {
		t.Fatalf("layout %+v", m.InlineKeyboard)
	}
	d := Data(m)
	if len(d) != 2 || d[0] != "x" || d[1] != "y" {
		t.Fatalf("Data = %v", d)
	}
	if Data(nil) != nil {
		t.Fatal("nil markup should yield nil")
	}
}
