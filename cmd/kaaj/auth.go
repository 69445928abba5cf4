package main

import (
	"bufio"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"kaaj/internal/session"

	"github.com/spf13/cobra"
	"golang.org/x/term"
)

var registerCmd = &cobra.Command{
	Use:   "register",
	Short: "Create an account and send the verification email",
	RunE:  withEnv(runRegister),
}

var loginCmd = &cobra.Command{
	Use:   "login",
	Short: "Sign in with a verified account",
	RunE:  withEnv(runLogin),
}

var logoutCmd = &cobra.Command{
	Use:   "logout",
	Short: "Sign out and forget the cached session",
	RunE:  withEnv(runLogout),
}

var verifyCmd = &cobra.Command{
	Use:   "verify <token>",
	Short: "Confirm the email address with the token from the verification mail",
	Args:  cobra.ExactArgs(1),
	RunE:  withEnv(runVerify),
}

var verifyResendCmd = &cobra.Command{
	Use:   "resend",
	Short: "Send the verification email again",
	RunE:  withEnv(runVerifyResend),
}

var whoamiCmd = &cobra.Command{
	Use:   "whoami",
	Short: "Show the signed-in user",
	RunE:  withEnv(runWhoami),
}

var profileCmd = &cobra.Command{
	Use:   "profile",
	Short: "Update the display name and photo",
	RunE:  withEnv(runProfile),
}

var passwordCmd = &cobra.Command{
	Use:   "password",
	Short: "Change the password",
	RunE:  withEnv(runPassword),
}

var (
	authName     string
	authEmail    string
	authPassword string
	profilePhoto string
)

func init() {
	rootCmd.AddCommand(registerCmd, loginCmd, logoutCmd, verifyCmd, whoamiCmd, profileCmd, passwordCmd)
	verifyCmd.AddCommand(verifyResendCmd)

	registerCmd.Flags().StringVarP(&authName, "name", "n", "", "Display name")
	for _, cmd := range []*cobra.Command{registerCmd, loginCmd, verifyResendCmd} {
		cmd.Flags().StringVarP(&authEmail, "email", "e", "", "Email address")
		cmd.Flags().StringVarP(&authPassword, "password", "p", "", "Password (prompted when empty)")
	}
	profileCmd.Flags().StringVarP(&authName, "name", "n", "", "New display name")
	profileCmd.Flags().StringVar(&profilePhoto, "photo", "", "Image file to upload as the profile photo")
}

// prompt reads a line from stdin, hiding it when secret is set and stdin is
// a terminal.
func prompt(label string, secret bool) (string, error) {
	fmt.Fprint(os.Stderr, label+": ")
	fd := int(os.Stdin.Fd())
	if secret && term.IsTerminal(fd) {
		b, err := term.ReadPassword(fd)
		fmt.Fprintln(os.Stderr)
		return string(b), err
	}
	line, err := bufio.NewReader(os.Stdin).ReadString('\n')
	if err != nil && line == "" {
		return "", err
	}
	return strings.TrimRight(line, "\r\n"), nil
}

func promptIfEmpty(v *string, label string, secret bool) error {
	if *v != "" {
		return nil
	}
	s, err := prompt(label, secret)
	if err != nil {
		return err
	}
	*v = s
	return nil
}

func credentials() error {
	if err := promptIfEmpty(&authEmail, "Email", false); err != nil {
		return err
	}
	return promptIfEmpty(&authPassword, "Password", true)
}

func runRegister(cmd *cobra.Command, args []string, e *env) error {
	if err := promptIfEmpty(&authName, "Name", false); err != nil {
		return err
	}
	if err := credentials(); err != nil {
		return err
	}

	res, err := e.session.SignUp(cmd.Context(), session.SignUpInput{Name: authName, Email: authEmail, Password: authPassword})
	if err != nil {
		return err
	}
	fmt.Println(successStyle.Render("Account created."))
	fmt.Printf("A verification link was sent to %s. Verify, then run 'kaaj login'.\n", res.Email)
	return nil
}

func runLogin(cmd *cobra.Command, args []string, e *env) error {
	if err := credentials(); err != nil {
		return err
	}
	user, err := e.session.SignIn(cmd.Context(), session.SignInInput{Email: authEmail, Password: authPassword})
	if err != nil {
		return err
	}
	fmt.Println(successStyle.Render("Welcome, " + user.Name + "!"))
	return nil
}

func runLogout(cmd *cobra.Command, args []string, e *env) error {
	if err := e.session.SignOut(cmd.Context()); err != nil {
		return err
	}
	fmt.Println("Signed out.")
	return nil
}

func runVerify(cmd *cobra.Command, args []string, e *env) error {
	ident, err := e.client.VerifyEmail(cmd.Context(), args[0])
	if err != nil {
		return err
	}
	fmt.Println(successStyle.Render(ident.Email+" is verified.") + " Run 'kaaj login' to sign in.")
	return nil
}

// runVerifyResend signs in to obtain a backend session for the unverified
// account, then asks for another mail.
func runVerifyResend(cmd *cobra.Command, args []string, e *env) error {
	if err := credentials(); err != nil {
		return err
	}
	if _, err := e.client.SignIn(cmd.Context(), authEmail, authPassword); err != nil {
		return err
	}
	if err := e.session.ResendVerificationEmail(cmd.Context()); err != nil {
		return err
	}
	fmt.Printf("Verification email sent to %s.\n", authEmail)
	return nil
}

func runWhoami(cmd *cobra.Command, args []string, e *env) error {
	st := e.session.State()
	if st.User == nil {
		fmt.Println(mutedStyle.Render("Not signed in."))
		return nil
	}
	fmt.Println(formatUser(*st.User))
	return nil
}

func runProfile(cmd *cobra.Command, args []string, e *env) error {
	if err := e.requireUser(); err != nil {
		return err
	}
	in := session.ProfileInput{Name: authName}
	if in.Name == "" {
		in.Name = e.session.State().User.Name
	}
	if profilePhoto != "" {
		data, err := os.ReadFile(profilePhoto)
		if err != nil {
			return err
		}
		in.Photo = &session.Photo{Filename: filepath.Base(profilePhoto), Data: data}
	}

	user, err := e.session.UpdateProfile(cmd.Context(), in)
	if err != nil {
		return err
	}
	fmt.Println(formatUser(user))
	return nil
}

func runPassword(cmd *cobra.Command, args []string, e *env) error {
	if err := e.requireUser(); err != nil {
		return err
	}
	current, err := prompt("Current password", true)
	if err != nil {
		return err
	}
	next, err := prompt("New password", true)
	if err != nil {
		return err
	}
	if err := e.session.UpdatePassword(cmd.Context(), current, next); err != nil {
		return err
	}
	fmt.Println(successStyle.Render("Password changed. Other devices have been signed out."))
	return nil
}
