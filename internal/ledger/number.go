package ledger

import (
	"fmt"
	"strconv"
	"strings"
	"time"
)

// Period devuelve el prefijo año-mes del número de pedido.
func Period(t time.Time) string {
	return fmt.Sprintf("%04d-%02d", t.Year(), int(t.Month()))
}

// FormatOrderID arma "2026-10-0001". Pasado 9999 la secuencia simplemente crece.
func FormatOrderID(period string, seq int) string {
	return fmt.Sprintf("%s-%04d", period, seq)
}

func ParseOrderID(id string) (period string, seq int, err error) {
	i := strings.LastIndexByte(id, '-')
	if i <= 0 {
		return "", 0, fmt.Errorf("número de pedido inválido: %q", id)
	}
	period = id[:i]
	if _, err := time.Parse("2006-01", period); err != nil {
		return "", 0, fmt.Errorf("número de pedido inválido: %q", id)
	}
	seq, err = strconv.Atoi(id[i+1:])
	if err != nil || seq < 1 {
		return "", 0, fmt.Errorf("número de pedido inválido: %q", id)
	}
	return period, seq, nil
}
