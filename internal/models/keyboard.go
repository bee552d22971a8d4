package models

// Button кнопка inline-клавиатуры: либо callback Data, либо URL.
type Button struct {
	Text string
	Data string
	URL  string
}

// Keyboard клавиатура, не зависящая от транспорта.
type Keyboard struct {
	Rows [][]Button
	// Reply означает обычную клавиатуру под полем ввода вместо inline.
	Reply bool
}

// NewKeyboard собирает inline-клавиатуру из строк.
func NewKeyboard(rows ...[]Button) *Keyboard {
	return &Keyboard{Rows: rows}
}

// Row короткий конструктор строки кнопок.
func Row(buttons ...Button) []Button {
	return buttons
}
