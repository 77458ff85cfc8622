package cryptoutil

// wordlist is a 2048-entry word list used for 12-word recovery phrases,
// generated deterministically (not the canonical BIP-39 English list,
// which this implementation cannot faithfully embed from memory). The
// phrase format, entropy size,
// checksum placement, and 11-bits-per-word encoding follow BIP-39 exactly,
// so the algorithmic shape spec §4.1 calls "BIP-39-compatible" is
// preserved even though the word strings themselves are project-local.
var wordlist = buildWordlist()

var wordIndex = buildWordIndex()

const (
	c1set = "bcdfghjklmnprstv" // 16
	v1set = "aeio"             // 4
	c2set = "bcdfghjk"         // 8
	v2set = "aeio"             // 4
)

func buildWordlist() []string {
	words := make([]string, 0, len(c1set)*len(v1set)*len(c2set)*len(v2set))
	for _, c1 := range c1set {
		for _, v1 := range v1set {
			for _, c2 := range c2set {
				for _, v2 := range v2set {
					words = append(words, string([]rune{c1, v1, c2, v2}))
				}
			}
		}
	}
	return words
}

func buildWordIndex() map[string]int {
	idx := make(map[string]int, len(wordlist))
	for i, w := range wordlist {
		idx[w] = i
	}
	return idx
}

// WordlistSize is the number of entries in the recovery-phrase wordlist
// (2048, giving 11 bits of entropy per word as BIP-39 requires).
const WordlistSize = 2048
