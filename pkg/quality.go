package analyzer

// corruptedTDC is the per-TDC status digit flagging corrupted data.
const corruptedTDC = 2

// IsValid decodes the quality flag one decimal digit at a time, starting at
// the least significant one. Each digit is the status of one TDC; a digit
// equal to 2 marks the whole event as corrupted.
func IsValid(qualityFlag int) bool {
	flag := qualityFlag
	if flag < 0 {
		flag = -flag
	}
	for flag != 0 {
		if flag%10 == corruptedTDC {
			return false
		}
		flag /= 10
	}
	return true
}
