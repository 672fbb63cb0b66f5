package out

// Encryptor is the at-rest encryption contract.
type Encryptor interface {
	Encrypt(plaintext string) (string, error)
	Decrypt(ciphertext string) (string, error)
	Hash(content string) string
}
