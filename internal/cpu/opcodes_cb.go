package cpu

// executeCB runs a CB-prefixed instruction. The CB byte and this second byte
// have already each been fetched (and ticked) by the caller.
func (c *CPU) executeCB(op2 byte) {
	idx := op2 & 7
	if op2 < 0x40 {
		v := c.get8(idx)
		var out byte
		switch op2 >> 3 {
		case 0:
			out = c.rlc(v)
		case 1:
			out = c.rrc(v)
		case 2:
			out = c.rl(v)
		case 3:
			out = c.rr(v)
		case 4:
			out = c.sla(v)
		case 5:
			out = c.sra(v)
		case 6:
			out = c.swap(v)
		default:
			out = c.srl(v)
		}
		c.set8(idx, out)
		return
	}

	bitN := (op2 >> 3) & 7
	switch op2 >> 6 {
	case 1: // BIT b,r — no write-back
		c.bit(bitN, c.get8(idx))
	case 2: // RES b,r
		c.set8(idx, res(bitN, c.get8(idx)))
	default: // SET b,r
		c.set8(idx, set(bitN, c.get8(idx)))
	}
}
