// Package validation содержит функции валидации входных данных.
package validation

const (
	codeMinLen = 6
	codeMaxLen = 12
)

// IsValidUniqueCode проверяет формат кода покупки: 6–12 символов,
// только заглавные латинские буквы и цифры.
func IsValidUniqueCode(code string) bool {
	if len(code) < codeMinLen || len(code) > codeMaxLen {
		return false
	}

	for i := 0; i < len(code); i++ {
		ch := code[i]
		if ch >= '0' && ch <= '9' {
			continue
		}
		if ch >= 'A' && ch <= 'Z' {
			continue
		}
		return false
	}

	return true
}
