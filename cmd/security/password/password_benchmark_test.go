package password

import "testing"

func BenchmarkHashVerify(b *testing.B) {
	const pw = "correct horse battery staple"

	configs := map[string]Config{
		"default": DefaultConfig(),
		"fast":    fastConfig(),
	}
	for name, cfg := range configs {
		b.Run(name+"/hash", func(b *testing.B) {
			for b.Loop() {
				if _, err := cfg.Hash(pw); err != nil {
					b.Fatalf("Hash: %v", err)
				}
			}
		})

		h, err := cfg.Hash(pw)
		if err != nil {
			b.Fatalf("Hash: %v", err)
		}
		b.Run(name+"/verify", func(b *testing.B) {
			for b.Loop() {
				if ok, err := cfg.Verify(h, pw); err != nil || !ok {
					b.Fatalf("Verify: ok=%v err=%v", ok, err)
				}
			}
		})
	}
}
