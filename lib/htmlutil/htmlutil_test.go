package htmlutil

import (
	"testing"

	"github.com/stretchr/testify/require"
)

const loginPage = `<html><body>
<form method="post">
	<input type="hidden" name="__RequestVerificationToken" value="tok-123">
	<input type="hidden" name="code" value="abc">
	<input type="hidden" name="scope" value="openid profile">
	<input type="text" name="Username">
</form>
</body></html>`

func TestInputValue(t *testing.T) {
	doc, err := ParseDocument([]byte(loginPage))
	require.NoError(t, err)

	require.Equal(t, "tok-123", InputValue(doc, "__RequestVerificationToken"))
	require.Equal(t, "", InputValue(doc, "does_not_exist"))
}

func TestHiddenInputs(t *testing.T) {
	doc, err := ParseDocument([]byte(loginPage))
	require.NoError(t, err)

	values := HiddenInputs(doc, "code", "scope", "state")
	require.Equal(t, map[string]string{
		"code":  "abc",
		"scope": "openid profile",
	}, values)
	require.NotContains(t, values, "state")
}
