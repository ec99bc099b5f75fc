package http

// MappedForms returns how many form and action pairs hold mapped errors.
func MappedForms(h *ModelHandler) int {
	return h.mapper.Len()
}
