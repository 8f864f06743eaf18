package vara

import "strings"

// ctrlMsg is one parsed line from VARA's text control channel, e.g.
// "PTT TRUE", "BUFFER 128", "NEWSTATE CONNECTED", "BUSY TRUE", "DISCONNECTED".
type ctrlMsg struct {
	cmd   string
	value string
}

func (m ctrlMsg) Bool() bool {
	return strings.EqualFold(m.value, "TRUE") || m.value == "1"
}

func parseCtrlMsg(line string) ctrlMsg {
	line = strings.TrimSpace(line)
	parts := strings.SplitN(line, " ", 2)
	m := ctrlMsg{cmd: strings.ToUpper(parts[0])}
	if len(parts) == 2 {
		m.value = parts[1]
	}
	return m
}
